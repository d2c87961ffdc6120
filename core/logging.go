package core

import "github.com/sirupsen/logrus"

// NewComponentLogger returns a child logger tagged with a "component"
// field so log lines from the ledger, consensus engine, coordinator, and
// store can be filtered independently, the way the teacher's
// authority/ledger code tags its own logrus fields.
func NewComponentLogger(root *logrus.Logger, component string) *logrus.Entry {
	if root == nil {
		root = logrus.StandardLogger()
	}
	return root.WithField("component", component)
}
