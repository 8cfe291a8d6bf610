// Copyright 2024 AgentChat Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package agent provides the actor runtime for agentchat.

# Overview

An Agent wraps a Mailbox and a pluggable Responder. Its event loop runs in
its own goroutine, suspends on the mailbox, invokes the Responder for each
message and reports the outcome as a Turn to an Outbox. Agents communicate
only through mailboxes; there is no shared mutable state between them.

# Turn Outcomes

	success     -> Turn.Output holds the stamped replies
	transient   -> Turn.Output holds one error-kind message, loop continues
	fatal       -> Turn.Fatal is set, Err() records the failure, loop exits
	cancelled   -> Turn.Cancelled is set, partial output is dropped

# Termination

Before each dispatch the loop checks the termination policy: once the
configured number of turns has been completed, or the received message
matches the terminal predicate, the agent closes its mailbox and stops.
Terminate closes the mailbox and waits for the loop up to the grace period
(AGENT_GRACE_PERIOD_SECONDS, default 3s) before aborting. Abort cancels the
loop immediately.

# Standalone Routing

Broker is an Outbox that routes turn outputs between registered agents.
Direct messages go to their recipient; broadcasts reach every agent
registered at send time except the sender.

	b := agent.NewBroker(logger, nil)
	_ = b.Register(agent.New(responder.Echo{}, agent.WithName("assistant")))
	_ = b.Start(ctx)
	_ = b.Send(ctx, types.NewMessage("", "hello"))

Group orchestration with speaker selection lives in agent/conversation.
*/
package agent
