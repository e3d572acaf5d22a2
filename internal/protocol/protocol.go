// Package protocol defines the action-tagged messages exchanged between the
// page agent, the relay and the popup.
package protocol

import (
	"encoding/json"

	"github.com/samber/lo"
)

// Requests sent by the popup.
const (
	ActionCheckConnection     = "checkConnection"
	ActionCheckArchivesStatus = "checkArchivesStatus"
	ActionOpenArchivesPanel   = "openArchivesPanel"
	ActionDeleteAllArchives   = "deleteAllArchives"
	ActionAbortDeletion       = "abortDeletion"
	ActionGetLogEntries       = "getLogEntries"
)

// Pushes sent by the agent.
const (
	ActionLogUpdate            = "logUpdate"
	ActionUpdateDeleteProgress = "updateDeleteProgress"
	ActionContentScriptLoaded  = "contentScriptLoaded"
)

var requestActions = map[string]bool{
	ActionCheckConnection:     true,
	ActionCheckArchivesStatus: true,
	ActionOpenArchivesPanel:   true,
	ActionDeleteAllArchives:   true,
	ActionAbortDeletion:       true,
	ActionGetLogEntries:       true,
}

var pushActions = map[string]bool{
	ActionLogUpdate:            true,
	ActionUpdateDeleteProgress: true,
	ActionContentScriptLoaded:  true,
}

func IsRequest(action string) bool { return requestActions[action] }

func IsPush(action string) bool { return pushActions[action] }

// DeleteOptions travels with deleteAllArchives. A nil ConfirmBeforeDelete
// means the stored option decides.
type DeleteOptions struct {
	ConfirmBeforeDelete *bool `json:"confirmBeforeDelete,omitempty"`
}

// Message is one record on the wire. Only the fields relevant to Action are set.
type Message struct {
	Action string `json:"action"`

	Options *DeleteOptions `json:"options,omitempty"`

	// logUpdate
	Entry string `json:"entry,omitempty"`

	// updateDeleteProgress
	Current   int  `json:"current,omitempty"`
	Total     int  `json:"total,omitempty"`
	Completed bool `json:"completed,omitempty"`

	// contentScriptLoaded
	URL string `json:"url,omitempty"`
}

// Result is the outcome of one deletion session.
type Result struct {
	Deleted int `json:"deleted"`
	Total   int `json:"total"`
}

type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// checkConnection
	Connected bool   `json:"connected,omitempty"`
	Domain    string `json:"domain,omitempty"`

	// checkArchivesStatus
	ArchivesOpen bool `json:"archivesOpen"`
	Count        int  `json:"count"`

	// getLogEntries
	Entries []string `json:"entries,omitempty"`

	// deleteAllArchives
	Result *Result `json:"result,omitempty"`
}

func OK() Response { return Response{Success: true} }

func Fail(err error) Response { return Response{Success: false, Error: err.Error()} }

func LogUpdate(entry string) Message {
	return Message{Action: ActionLogUpdate, Entry: entry}
}

func Progress(current, total int, completed bool) Message {
	return Message{Action: ActionUpdateDeleteProgress, Current: current, Total: total, Completed: completed}
}

func Decode(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

func Bool(v bool) *bool { return &v }

// ChatHosts are the hostnames the agent is allowed to drive.
var ChatHosts = []string{"chat.openai.com", "chatgpt.com"}

func IsChatHost(host string) bool {
	return lo.Contains(ChatHosts, host)
}
