// Package integration contains the Integration bounded context.
// It defines the ports through which fulfillment talks to the outside world.
//
// Key concepts:
//   - Credential: the single shared bearer credential for the vendor marketplace API
//   - TokenProvider: hands out a valid bearer token, refreshing it when expired
//   - VendorGateway: port to the vendor marketplace (orders, consignments, returns)
//   - CarrierTracker: port to a carrier's tracking-status API
//   - FeedSource: port to wherever carrier batch feed files are dropped
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
