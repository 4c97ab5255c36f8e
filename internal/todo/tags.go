package todo

import (
	"fmt"
	"strings"

	"github.com/HendryAvila/tally/internal/store"
)

// Tag conventions applied on top of user tags.
const (
	TagTodo            = "TODO"
	TagUrgent          = "urgent"
	priorityTagPrefix  = "priority-"
	recurringTagPrefix = "recurring-"
)

// Recurrence values accepted for daily tasks.
var recurrences = map[string]bool{"daily": true, "weekly": true, "monthly": true}

// PriorityTag returns the tag for priority p.
func PriorityTag(p int) string {
	return fmt.Sprintf("%s%d", priorityTagPrefix, p)
}

// CreateTags derives the initial tag set for a new task and merges extra.
func CreateTags(typ store.TaskType, priority *int, urgent bool, extra []string) []string {
	tags := []string{TagTodo, string(typ)}
	switch typ {
	case store.TypeDaily:
		tags = append(tags, recurringTagPrefix+"daily")
	case store.TypeOneOff:
		p := store.DefaultPriority
		if priority != nil {
			p = *priority
		}
		tags = append(tags, PriorityTag(p))
		if urgent {
			tags = append(tags, TagUrgent)
		}
	}
	return store.NormalizeTags(append(tags, extra...))
}

// TagChange describes the fields of an update that affect tags.
type TagChange struct {
	Priority  *int
	IsUrgent  *bool
	Recurring *string
}

// RecomputeTags applies change to an existing tag set. Tags it does not own
// are kept.
func RecomputeTags(existing []string, change TagChange) []string {
	tags := append([]string(nil), existing...)

	if change.Priority != nil {
		tags = dropPrefix(tags, priorityTagPrefix)
		tags = append(tags, PriorityTag(*change.Priority))
	}
	if change.IsUrgent != nil {
		tags = dropTag(tags, TagUrgent)
		if *change.IsUrgent {
			tags = append(tags, TagUrgent)
		}
	}
	if change.Recurring != nil {
		tags = dropPrefix(tags, recurringTagPrefix)
		tags = append(tags, recurringTagPrefix+strings.ToLower(strings.TrimSpace(*change.Recurring)))
	}
	return store.NormalizeTags(tags)
}

func dropPrefix(tags []string, prefix string) []string {
	out := tags[:0]
	for _, t := range tags {
		if !strings.HasPrefix(t, prefix) {
			out = append(out, t)
		}
	}
	return out
}

func dropTag(tags []string, tag string) []string {
	out := tags[:0]
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}
