// Package fulfillment contains the Fulfillment bounded context.
// It owns the local, authoritative copy of marketplace orders and everything
// that happens to them after they are accepted: shipping, carrier tracking,
// cancellation and returns.
//
// Key concepts:
//   - Order: a marketplace purchase identified by its immutable vendor code
//   - OrderLine: a line item carrying the cancelled/returned quantity ledger
//   - Consignment: one shipped parcel grouping, tracked by a carrier
//   - Return: a reversal tree of entries, return consignments and packages
//
// Order status is reconciled from consignment status (see DeriveOrderStatus).
// The vendor marketplace and the carriers only ever hold shadow copies.
package fulfillment
