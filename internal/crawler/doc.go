// Package crawler holds the shared domain model: crawl requests and reports,
// the operation result variants, the error taxonomy, address resolution and
// the interfaces implemented by fetchers, stores and publishers.
package crawler
