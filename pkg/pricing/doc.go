// Package pricing defines pricing records and turns a quantity into an amount.
//
// Amounts are integers in the token's smallest unit, carried as
// decimal.Decimal so that large prices multiplied by large quantities never
// overflow.
//
// Two tier algorithms are supported:
//
//   - Volume: the whole quantity is priced at the first tier whose upper bound
//     covers it, plus that tier's flat rate.
//   - Graduated: the quantity is split across tiers; every tier that receives
//     units adds its flat rate once plus its unit price per unit.
//
// With tiers [{0, 10, 5, 20}, {11, unbounded, 5, 10}]:
//
//	VolumeCost(tiers, 20)    = 10 + 5*20            = 110
//	GraduatedCost(tiers, 20) = (20 + 5*10) + (10 + 5*10) = 130
package pricing
