// Package core contains the syndication domain contracts, entities, and the
// webhook pipeline orchestration (revocation fan-out, removal verification,
// retry sweeps). Transport and storage adapters depend on this package; core
// must not depend on them.
package core
