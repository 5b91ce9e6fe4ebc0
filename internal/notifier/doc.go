// Package notifier delivers notice notifications to people.
//
// A Dispatcher addresses either one user or every holder of a role. The
// package ships a storage-backed inbox, a Telegram broadcaster keyed by role,
// a dry-run printer and a fan-out over several dispatchers.
package notifier
