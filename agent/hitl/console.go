package hitl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/BaSui01/agentchat/agent/conversation"
	"github.com/BaSui01/agentchat/agent/responder"
)

// DefaultPrompt 控制台输入提示符
const DefaultPrompt = ">>> "

type line struct {
	text string
	err  error
}

// ConsoleInput 从 io.Reader 逐行读取人工输入。
// 读取在后台 goroutine 中进行，等待输入可被 ctx 取消，未读取的行保留给下一次调用。
type ConsoleInput struct {
	out    io.Writer
	prompt string

	in    io.Reader
	start sync.Once
	lines chan line

	mu sync.Mutex // 串行化提示与读取
}

var (
	_ responder.InputProvider = (*ConsoleInput)(nil)
	_ conversation.Chooser    = (*ConsoleInput)(nil)
)

// NewConsoleInput 创建控制台输入，out 为 nil 时不打印提示。
func NewConsoleInput(in io.Reader, out io.Writer) *ConsoleInput {
	if out == nil {
		out = io.Discard
	}
	return &ConsoleInput{
		in:     in,
		out:    out,
		prompt: DefaultPrompt,
		lines:  make(chan line),
	}
}

// WithPrompt 设置提示符
func (c *ConsoleInput) WithPrompt(prompt string) *ConsoleInput {
	c.prompt = prompt
	return c
}

func (c *ConsoleInput) reader() {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		c.lines <- line{text: scanner.Text()}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	for {
		c.lines <- line{err: err}
	}
}

func (c *ConsoleInput) readLine(ctx context.Context) (string, error) {
	c.start.Do(func() { go c.reader() })
	fmt.Fprint(c.out, c.prompt)
	select {
	case l := <-c.lines:
		return l.text, l.err
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return "", ctx.Err()
	}
}

// PromptUser implements responder.InputProvider.
func (c *ConsoleInput) PromptUser(ctx context.Context, conv responder.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := conv.Last(); ok {
		fmt.Fprintf(c.out, "[%s] %s\n", speaker(last.SenderName, string(last.Sender)), last.Content)
	}
	if conv.Name != "" {
		fmt.Fprintf(c.out, "%s, your reply (empty to skip):\n", conv.Name)
	}
	return c.readLine(ctx)
}

// Choose implements conversation.Chooser.
func (c *ConsoleInput) Choose(ctx context.Context, req conversation.SelectionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, "Next speaker:")
	for i, cand := range req.Candidates {
		fmt.Fprintf(c.out, "  %d) %s\n", i+1, cand.Name)
	}
	text, err := c.readLine(ctx)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if n, convErr := strconv.Atoi(text); convErr == nil && n >= 1 && n <= len(req.Candidates) {
		return string(req.Candidates[n-1].ID), nil
	}
	return text, nil
}

func speaker(name, id string) string {
	if name != "" {
		return name
	}
	if id == "" {
		return "system"
	}
	return id
}
