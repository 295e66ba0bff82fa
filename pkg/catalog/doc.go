// Package catalog loads pricing records and discounts from a YAML document.
//
// A catalog looks like:
//
//	pricings:
//	  - id: 1
//	    org_id: 7
//	    charge_style: tiered_graduated
//	    token: USDC
//	    cycle_duration: monthly
//	    tiers:
//	      - {lower_bound: 1, upper_bound: 10, price_per_unit: "100000000"}
//	      - {lower_bound: 11, upper_bound: 0, price_per_unit: "50000000"}
//	coupons:
//	  - {org_id: 7, code: LAUNCH, kind: percent, value: "10"}
//	pass_discounts:
//	  - {org_id: 7, kind: fixed, value: "1000000"}
//
// Amounts are strings in the token's smallest unit. An upper_bound of 0 means
// the tier is unbounded. Pricings are active unless active: false is given.
//
// Catalogs come from a FileSource or an S3Source. Apply writes the pricings
// to a store and swaps the discount table, and Watcher re-applies a file
// catalog whenever the file changes.
package catalog
