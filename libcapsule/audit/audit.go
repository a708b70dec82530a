// Package audit records privileged operations.
package audit

import (
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/sirupsen/logrus"
)

// Record logs that action is about to be performed with args on behalf of
// the user uid. The record goes to the systemd journal when it is available
// and to the log otherwise.
func Record(action string, uid int, args []string) {
	msg := "bluecap " + action + " " + strings.Join(args, " ")
	fields := logrus.Fields{"action": action, "uid": uid}
	if !journal.Enabled() {
		logrus.WithFields(fields).Info(msg)
		return
	}
	err := journal.Send(msg, journal.PriNotice, map[string]string{
		"SYSLOG_IDENTIFIER":    "bluecap",
		"BLUECAP_ACTION":       action,
		"BLUECAP_ORIGINAL_UID": strconv.Itoa(uid),
	})
	if err != nil {
		logrus.WithFields(fields).Warnf("unable to write audit record to the journal: %v", err)
	}
	logrus.WithFields(fields).Debug(msg)
}
