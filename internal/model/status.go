package model

// Status is the read/visibility state of a notification record.
type Status int

const (
	// StatusUnseen is a record that exists but has not been shown yet.
	StatusUnseen Status = iota
	// StatusVisibleUnread is an unread record whose popup is on screen.
	StatusVisibleUnread
	// StatusHiddenUnread is an unread record whose popup has been dismissed.
	StatusHiddenUnread
	// StatusRead is a record the user has opened or bulk-marked.
	StatusRead
	// StatusRemoved is a record deleted by the user.
	StatusRemoved
)

var statusNames = map[Status]string{
	StatusUnseen:        "unseen",
	StatusVisibleUnread: "visible_unread",
	StatusHiddenUnread:  "hidden_unread",
	StatusRead:          "read",
	StatusRemoved:       "removed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStatus is the inverse of String. Unknown names map to StatusHiddenUnread.
func ParseStatus(name string) Status {
	for s, n := range statusNames {
		if n == name {
			return s
		}
	}
	return StatusHiddenUnread
}

// IsUnread reports whether the status counts towards the unread badge.
func (s Status) IsUnread() bool {
	return s == StatusUnseen || s == StatusVisibleUnread || s == StatusHiddenUnread
}

// IsVisible reports whether a popup for the record is on screen.
func (s Status) IsVisible() bool {
	return s == StatusVisibleUnread
}

// Show moves a freshly arrived record onto the screen.
func (s Status) Show() Status {
	if s == StatusUnseen {
		return StatusVisibleUnread
	}
	return s
}

// Hide dismisses the popup but keeps the record unread.
func (s Status) Hide() Status {
	if s == StatusUnseen || s == StatusVisibleUnread {
		return StatusHiddenUnread
	}
	return s
}

// MarkRead moves any live record to StatusRead.
func (s Status) MarkRead() Status {
	if s == StatusRemoved {
		return s
	}
	return StatusRead
}

// Remove is valid from every state.
func (s Status) Remove() Status {
	return StatusRemoved
}

// StatusFor returns the initial status of a record given its read flag and
// whether its popup should be shown.
func StatusFor(read, visible bool) Status {
	switch {
	case read:
		return StatusRead
	case visible:
		return StatusUnseen
	default:
		return StatusHiddenUnread
	}
}
