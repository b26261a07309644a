// Package mongodb backs the queue engine with a MongoDB collection, as an
// alternative to the PostgreSQL record store. Reserve relies on
// findOneAndUpdate, which the server applies atomically per document.
package mongodb
