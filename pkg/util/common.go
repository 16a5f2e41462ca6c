// Package util holds small cross-cutting helpers shared by the kernel
// facade and its demo binaries.
package util

import (
	"io"
	"log/slog"
)

// CloseLogged closes c and logs, rather than returns, any error. Used for
// best-effort teardown paths (e.g. a deferred Runtime.Close in a demo
// binary) where the caller has nothing meaningful to do with a close error
// but still wants it surfaced.
func CloseLogged(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Error("close", "resource", name, "err", err)
	}
}
