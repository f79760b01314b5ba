// Package cluster holds the pieces shared by all three bazaar services:
// the wire types of the trading protocol, JSON HTTP helpers with a bounded
// transport timeout, topology configuration, and logger construction.
//
// # Wire protocol
//
// Every cross-service message is JSON over HTTP. The envelopes are fixed:
//
//	{"error":   {"code": 404, "message": "stock not found"}}
//	{"success": {"code": 200, "message": "updated stock successfully"}}
//	{"data":    {...}}                      (front-end responses)
//	{"transaction-number": 7}               (leader trade receipt)
//
// Replication messages carry their own ids so that delivery can be both
// out of order and repeated:
//
//	push: {"nextID": 7, "entry": {"name": "FishCo", "quantity": 10, "type": "buy"}}
//	sync: {"lastID": 4} -> {"leader-id": 3, "transactions": {"4": {...}, ...}}
//
// # Topology
//
// The deployment is static: one catalog, one front-end, three order
// replicas with ids 1..3. LoadConfig reads their locations from the
// environment (CATALOG_HOST, FRONT_PORT, ORDER_2_HOST, and so on) with
// localhost defaults so the whole system runs on one machine untouched.
//
// # HTTP helpers
//
// PostJSON and GetJSON mirror each other: marshal, send with a 5 second
// client timeout, treat any status >= 300 as an error, decode into out.
// GetJSONWithBody exists because the sync protocol ships its cursor in
// the body of a GET.
package cluster
