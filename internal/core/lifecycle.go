package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Module instances pass through these optional phases in order:
// Configure, Provision, Validate when loaded, then Start once every
// module is loaded, and Stop in reverse start order at shutdown.

// Configurable modules receive their section of toolbench.yaml. Configure
// is skipped when the module has no section.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules apply defaults and build their collaborators. Services
// shared with other modules (session.store, engine) are registered here.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check the provisioned state without side effects.
type Validator interface {
	Validate() error
}

// Starter modules launch background work such as listeners, watchers and
// cron jobs.
type Starter interface {
	Start() error
}

// Stopper modules release what Start or Provision acquired.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader modules accept a new configuration without a restart.
type Reloader interface {
	Reload(ctx *AppContext) error
}
