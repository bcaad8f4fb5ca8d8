package etcd

import (
	"net/url"
	"strings"
)

const (
	TestCasePrefix       = "/tracker/testcases/"
	GenerationPrefix     = "/tracker/generations/"
	SessionPrefix        = "/tracker/sessions/"
	ExecutionPrefix      = "/tracker/executions/"
	ExecutionIndexPrefix = "/tracker/execution-ids/"
	ReportPrefix         = "/tracker/reports/"
	LockPrefix           = "/tracker/locks/"
	LeaderElectionKey    = "/tracker/leader"
)

// noSession is the key segment of executions recorded outside any session.
// Session segments carry an "@" prefix so no session id can produce it.
const noSession = "_"

func segment(s string) string {
	return url.PathEscape(s)
}

func testCaseKey(id string) string {
	return TestCasePrefix + segment(id)
}

func generationKey(generationID, testCaseID string) string {
	return GenerationPrefix + segment(generationID) + "/" + segment(testCaseID)
}

func generationPrefix(generationID string) string {
	return GenerationPrefix + segment(generationID) + "/"
}

func sessionKey(id string) string {
	return SessionPrefix + segment(id)
}

func reportKey(sessionID string) string {
	return ReportPrefix + segment(sessionID)
}

// executionSlotPrefix holds every attempt of one test case in one session
// scope. An empty session id is its own scope.
func executionSlotPrefix(testCaseID, sessionID string) string {
	s := noSession
	if sessionID != "" {
		s = "@" + segment(sessionID)
	}
	return ExecutionPrefix + segment(testCaseID) + "/" + s + "/"
}

func executionKey(testCaseID, sessionID, id string) string {
	return executionSlotPrefix(testCaseID, sessionID) + segment(id)
}

func executionIndexKey(id string) string {
	return ExecutionIndexPrefix + segment(id)
}

// lockKey keeps lock names readable: slashes in the name become key levels.
func lockKey(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = segment(p)
	}
	return LockPrefix + strings.Join(parts, "/")
}
