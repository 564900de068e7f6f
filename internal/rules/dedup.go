package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// noEntity stands in for a missing related entity inside a dedup key.
const noEntity = "none"

// DedupKey is the parsed identity of one escalation.
type DedupKey struct {
	RuleID          string
	TargetUserID    string
	RelatedEntityID string
	Level           int
}

// String renders the key in its canonical form.
func (k DedupKey) String() string {
	return BuildTriggerDedupKey(k.RuleID, k.TargetUserID, k.RelatedEntityID, k.Level)
}

// BuildTriggerDedupKey returns "ruleId:targetUserId:relatedEntityId:L<level>",
// with "none" for a missing entity.
func BuildTriggerDedupKey(ruleID, targetUserID, relatedEntityID string, level int) string {
	entity := relatedEntityID
	if entity == "" {
		entity = noEntity
	}
	return fmt.Sprintf("%s:%s:%s:L%d", ruleID, targetUserID, entity, level)
}

// ParseTriggerDedupKey inverts BuildTriggerDedupKey. The rule id is taken
// up to the first colon and the level after the last one; of the middle, the
// user id runs to the next colon and the entity keeps any colons of its own.
// User ids must not contain colons (RecordCoordinationEvent rejects them).
func ParseTriggerDedupKey(key string) (DedupKey, error) {
	ruleID, rest, ok := strings.Cut(key, ":")
	last := strings.LastIndex(rest, ":")
	if !ok || last < 0 {
		return DedupKey{}, fmt.Errorf("dedup key %q: want rule:user:entity:L<level>", key)
	}
	middle, levelPart := rest[:last], rest[last+1:]
	userID, entityID, ok := strings.Cut(middle, ":")
	if !ok || ruleID == "" || userID == "" || entityID == "" {
		return DedupKey{}, fmt.Errorf("dedup key %q: want rule:user:entity:L<level>", key)
	}
	if !strings.HasPrefix(levelPart, "L") {
		return DedupKey{}, fmt.Errorf("dedup key %q: level segment %q has no L prefix", key, levelPart)
	}
	level, err := strconv.Atoi(levelPart[1:])
	if err != nil {
		return DedupKey{}, fmt.Errorf("dedup key %q: parsing level: %w", key, err)
	}

	k := DedupKey{
		RuleID:          ruleID,
		TargetUserID:    userID,
		RelatedEntityID: entityID,
		Level:           level,
	}
	if k.RelatedEntityID == noEntity {
		k.RelatedEntityID = ""
	}
	return k, nil
}
