package domain

import "strings"

// Topic namespaces.
const (
	TopicNamespaceWorkspace = "workspace"
	TopicNamespaceUser      = "user"
	TopicNamespaceGlobal    = "global"
)

// GlobalTopic receives changes with no resolvable owner.
const GlobalTopic = TopicNamespaceGlobal

// WorkspaceTopic returns the topic for a workspace and everything under it.
func WorkspaceTopic(workspaceID string) string {
	return TopicNamespaceWorkspace + ":" + workspaceID
}

// UserTopic returns the topic for changes targeted at a single user.
func UserTopic(userID string) string {
	return TopicNamespaceUser + ":" + userID
}

// ParseTopic splits a topic into namespace and id. The global topic has no id.
func ParseTopic(topic string) (namespace, id string, ok bool) {
	if topic == GlobalTopic {
		return TopicNamespaceGlobal, "", true
	}
	ns, rest, found := strings.Cut(topic, ":")
	if !found || rest == "" {
		return "", "", false
	}
	switch ns {
	case TopicNamespaceWorkspace, TopicNamespaceUser:
		return ns, rest, true
	default:
		return "", "", false
	}
}
