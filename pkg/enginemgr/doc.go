// Package enginemgr implements the process-wide engine manager: acquire,
// release, cleanup of idle engines, and hot-reload (create) from a new
// config path. Sessions acquire exactly one engine on their first
// transaction and release it when they tear down; the manager owns
// engines' actual lifetime and may outlive any one session.
package enginemgr
