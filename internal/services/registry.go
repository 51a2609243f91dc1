// Package services wires the pipeline's stores together. One registry is
// constructed per session; components never reach into each other's state
// except through the registry's accessors.
package services

import (
	"github.com/bloomlabs/moderationd/internal/backend"
	"github.com/bloomlabs/moderationd/internal/flagging"
	"github.com/bloomlabs/moderationd/internal/history"
	"github.com/bloomlabs/moderationd/internal/ingest"
	"github.com/bloomlabs/moderationd/internal/moderation"
)

// Registry provides access to the pipeline stores.
type Registry interface {
	Processor() *moderation.Processor
	Flags() *flagging.Manager
	History() *history.Ledger
	Backend() *backend.Client
	Poller() *ingest.Poller
}

// Options configures the registry with store instances.
type Options struct {
	Processor *moderation.Processor
	Flags     *flagging.Manager
	History   *history.Ledger
	Backend   *backend.Client
	Poller    *ingest.Poller
}

type registry struct {
	processor *moderation.Processor
	flags     *flagging.Manager
	history   *history.Ledger
	backend   *backend.Client
	poller    *ingest.Poller
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		processor: opts.Processor,
		flags:     opts.Flags,
		history:   opts.History,
		backend:   opts.Backend,
		poller:    opts.Poller,
	}
}

func (r *registry) Processor() *moderation.Processor { return r.processor }
func (r *registry) Flags() *flagging.Manager         { return r.flags }
func (r *registry) History() *history.Ledger         { return r.history }
func (r *registry) Backend() *backend.Client         { return r.backend }
func (r *registry) Poller() *ingest.Poller           { return r.poller }
