package registry

import "sort"

// OrderedDialogues derives the display order for a set of dialogues: pinned
// dialogues first, ties broken by last activity, most recent first. The sort
// is stable, so dialogues with equal keys keep their incoming relative order.
//
// This is a pure function over registry state. It owns nothing and can be
// re-derived after every mutation.
func OrderedDialogues(dialogues []*Dialogue) []DialogueID {
	sorted := make([]*Dialogue, len(dialogues))
	copy(sorted, dialogues)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Pinned != sorted[j].Pinned {
			return sorted[i].Pinned
		}
		return sorted[i].LastActivity.After(sorted[j].LastActivity)
	})

	ret := make([]DialogueID, len(sorted))
	for i, d := range sorted {
		ret[i] = d.ID
	}
	return ret
}
