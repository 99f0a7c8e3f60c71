// Package repository maps FreeIPA user and group commands onto typed Go calls.
//
// Every operation builds a "<topic>_<op>" request from a template body, merges
// the server CLI's default options underneath the caller's options and sends
// it through an [rpc.Sender]. Caller options always win over defaults.
//
// # Results
//
// Show and Del return the raw [rpc.ResponseBody]. Find returns a [FindResult],
// Get/Add/Mod return the entry under result.result as an [Entry]. Get is the
// only operation that intercepts NotFound: a missing entry is reported as
// (nil, false, nil) rather than an error.
package repository

import (
	"context"
	"maps"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/go-freeipa/rpc"
)

// Options is a set of FreeIPA command options.
type Options map[string]any

// base holds what user and group repositories share.
type base struct {
	sender   rpc.Sender
	topic    string
	template rpc.RequestBody
}

func newBase(sender rpc.Sender, topic string, template rpc.RequestBody) base {
	return base{sender: sender, topic: topic, template: template}
}

// method returns the full command name for op, e.g. "user_show".
func (b base) method(op string) string {
	return b.topic + "_" + op
}

// mergeOptions layers each set over the previous one; later keys win.
func mergeOptions(layers ...map[string]any) Options {
	merged := make(Options)
	for _, layer := range layers {
		maps.Copy(merged, layer)
	}
	return merged
}

// request builds the body for op. Options are added on top of whatever the
// template already carries.
func (b base) request(op string, args []string, defaults Options, layers ...map[string]any) rpc.RequestBody {
	opts := mergeOptions(append([]map[string]any{defaults}, layers...)...)

	return b.template.
		WithMethod(b.method(op)).
		WithArguments(args).
		WithAddedOptions(opts).
		WithID(rpc.NewRequestID())
}

func (b base) send(ctx context.Context, body rpc.RequestBody) (*rpc.ResponseBody, error) {
	tflog.Debug(ctx, "Sending FreeIPA command", map[string]any{
		"method":    body.FullMethod(),
		"arguments": body.Arguments(),
	})

	resp, err := b.sender.SendRequest(ctx, body)
	if err != nil {
		tflog.Debug(ctx, "FreeIPA command failed", map[string]any{
			"method": body.FullMethod(),
			"error":  err.Error(),
		})
		return nil, err
	}
	return resp, nil
}

// get sends a show command and treats NotFound as absence.
func (b base) get(ctx context.Context, body rpc.RequestBody) (Entry, bool, error) {
	resp, err := b.sender.SendRequestRaw(ctx, body)
	if err != nil {
		return nil, false, err
	}

	if resp.HasError() {
		rpcErr := rpc.NewRPCError(body.Method(), resp.Error())
		if rpcErr.IsNotFound() {
			tflog.Debug(ctx, "FreeIPA entry not found", map[string]any{
				"method":    body.FullMethod(),
				"arguments": body.Arguments(),
			})
			return nil, false, nil
		}
		return nil, false, rpcErr
	}

	entry, err := entryResult(resp)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// find sends a find command and decodes the list result.
func (b base) find(ctx context.Context, body rpc.RequestBody) (*FindResult, error) {
	resp, err := b.send(ctx, body)
	if err != nil {
		return nil, err
	}
	return decodeFindResult(resp)
}

// FindResult is the decoded result of a *_find command.
type FindResult struct {
	Entries   []Entry `json:"result"`
	Count     int     `json:"count"`
	Truncated bool    `json:"truncated"`
	Summary   string  `json:"summary"`
}

func decodeFindResult(resp *rpc.ResponseBody) (*FindResult, error) {
	var result struct {
		Result    []Entry `json:"result"`
		Count     int     `json:"count"`
		Truncated bool    `json:"truncated"`
		Summary   *string `json:"summary"`
	}
	if err := resp.DecodeResult(&result); err != nil {
		return nil, err
	}

	found := &FindResult{
		Entries:   result.Result,
		Count:     result.Count,
		Truncated: result.Truncated,
	}
	if result.Summary != nil {
		found.Summary = *result.Summary
	}
	if found.Entries == nil {
		found.Entries = []Entry{}
	}
	return found, nil
}

// entryResult extracts result.result, the entry most commands return.
func entryResult(resp *rpc.ResponseBody) (Entry, error) {
	var result struct {
		Result Entry `json:"result"`
	}
	if err := resp.DecodeResult(&result); err != nil {
		return nil, err
	}
	if result.Result == nil {
		return Entry{}, nil
	}
	return result.Result, nil
}
