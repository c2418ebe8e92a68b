// Package catalog holds the two static lookup tables of the bridge: the
// device registry (remote node ID to location) and the alert catalog
// (location and message type to sound resource).
//
// A Catalog is built once at startup, from the YAML configuration or from
// SQLite, and is read-only afterwards. It is safe for concurrent readers.
//
// Usage:
//
//	cat, err := catalog.FromConfig(cfg.Tables)
//	if err != nil {
//	    return err
//	}
//	if loc, ok := cat.Location(7); ok {
//	    resource, ok := cat.Resource(loc, "HELP")
//	    ...
//	}
package catalog
