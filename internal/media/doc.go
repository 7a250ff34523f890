// Package media provides local capture sources for a session.
package media
