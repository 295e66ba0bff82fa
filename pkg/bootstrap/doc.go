// Package bootstrap builds the collaborators shared by the passbill server
// and the renewal worker from a loaded configuration: the store (memory,
// postgres or sqlite), the redis client, the pricing caches, the usage meter,
// the discount table and the metrics registry.
package bootstrap
