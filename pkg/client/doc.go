// Package client implements a DMQ transport session.
//
// A Client owns two channels: frames it sends (application messages and
// acknowledgments) go out on the send endpoint, and frames from the
// peer arrive on the receive endpoint. One goroutine drains the receive
// side, acknowledges every application frame by echoing its sequence
// number, and dispatches the decoded message to the handler registered
// for its type.
//
//	reg := dispatch.NewRegistry(nil)
//	dispatch.OnData(reg, func(m wire.DataMsg) { ... })
//
//	d, _ := transport.NewDialer(transport.KindZMQ, transport.DialOptions{})
//	c, _ := client.New(client.Config{}, d, reg)
//	if err := c.Start(ctx); err != nil { ... }
//	defer c.Stop()
//
//	c.Send(wire.RemoteCommand, wire.CommandMsg{Action: wire.ActionStart, PollTime: 500})
//
// Sends are fire-and-forget. Received acknowledgments are counted but
// not matched to sends.
package client
