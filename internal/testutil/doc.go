// Package testutil contains helper builders and stub collaborators used
// across tests to reduce boilerplate when constructing execution contexts,
// recording handler activity and faking pipeline collaborators (optimizers,
// loss functions, model states). These helpers are intentionally minimal and
// not intended for production usage.
package testutil
