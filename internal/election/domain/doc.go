// Package domain defines the core election types: roles and their
// capability table, verification purposes, PIN access entries, authorized
// users, security-key credentials, and ballot records.
package domain
