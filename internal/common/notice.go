package common

// NoticeLevel classifies a user-visible notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a short message the UI shows as a toast.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Notices accumulates notices produced while handling one request.
type Notices struct {
	items []Notice
}

// Add appends a notice with the given level.
func (n *Notices) Add(level NoticeLevel, message string) {
	if n == nil || message == "" {
		return
	}
	n.items = append(n.items, Notice{Level: level, Message: message})
}

// Info appends an informational notice.
func (n *Notices) Info(message string) { n.Add(NoticeInfo, message) }

// Success appends a success notice.
func (n *Notices) Success(message string) { n.Add(NoticeSuccess, message) }

// Warn appends a warning notice.
func (n *Notices) Warn(message string) { n.Add(NoticeWarning, message) }

// Error appends an error notice.
func (n *Notices) Error(message string) { n.Add(NoticeError, message) }

// Extend appends the provided notices in order.
func (n *Notices) Extend(items []Notice) {
	if n == nil {
		return
	}
	n.items = append(n.items, items...)
}

// List returns a copy of the accumulated notices.
func (n *Notices) List() []Notice {
	if n == nil || len(n.items) == 0 {
		return nil
	}
	out := make([]Notice, len(n.items))
	copy(out, n.items)
	return out
}
