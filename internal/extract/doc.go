// Package extract holds the helpers site adapters compose to pull product
// fields and links out of a fetched page: the selector cascade, JSON-LD
// parsing, price normalisation and URL resolution.
package extract
