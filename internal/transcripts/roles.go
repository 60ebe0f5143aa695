package transcripts

import "fmt"

// Conversational roles assigned by MapSpeakerRoles.
const (
	RoleSalesRep = "sales_rep"
	RoleCustomer = "customer"
)

// MapSpeakerRoles assigns a semantic role to every distinct speaker id in
// the utterance list.
//
// Heuristic: sales reps open recorded brokerage calls, so the first
// distinct speaker (by utterance order) is the rep, the second is the
// customer, and any further speakers become participant_3, participant_4,
// and so on. The mapping depends only on utterance order, so identical
// input always yields the identical mapping and re-runs are reproducible.
func MapSpeakerRoles(utterances []Utterance) map[string]string {
	roles := make(map[string]string)
	order := 0
	for _, u := range utterances {
		if _, seen := roles[u.Speaker]; seen {
			continue
		}
		order++
		switch order {
		case 1:
			roles[u.Speaker] = RoleSalesRep
		case 2:
			roles[u.Speaker] = RoleCustomer
		default:
			roles[u.Speaker] = fmt.Sprintf("participant_%d", order)
		}
	}
	return roles
}
