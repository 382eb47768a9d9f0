package prior

// Source labels which rung of the fallback ladder produced an estimate.
type Source string

const (
	SourceTechMatParts Source = "tech+mat+parts"
	SourceTechMat      Source = "tech+mat"
	SourceTechParts    Source = "tech+parts"
	SourceTech         Source = "tech"
	SourceGlobal       Source = "global"
)

// FallbackStep pairs a ladder rung with the group key it looks up.
type FallbackStep struct {
	Source Source
	Key    GroupKey
}

// BuildPlan returns the fallback ladder for one request, most specific
// first. Rungs whose dimensions are absent are skipped, identical
// (source, key) pairs are de-duplicated preserving first occurrence, and
// the global rung is always last. With no technology only global remains.
func BuildPlan(technology, material string, bucket PartsBucket) []FallbackStep {
	var steps []FallbackStep

	if technology != "" {
		tech := Tech(technology)
		if material != "" && bucket != BucketNone {
			steps = append(steps, FallbackStep{
				Source: SourceTechMatParts,
				Key:    GroupKey{Technology: tech, Material: material, Bucket: bucket},
			})
		}
		if material != "" {
			steps = append(steps, FallbackStep{
				Source: SourceTechMat,
				Key:    GroupKey{Technology: tech, Material: material},
			})
		}
		if bucket != BucketNone {
			steps = append(steps, FallbackStep{
				Source: SourceTechParts,
				Key:    GroupKey{Technology: tech, Bucket: bucket},
			})
		}
		steps = append(steps, FallbackStep{
			Source: SourceTech,
			Key:    GroupKey{Technology: tech},
		})
	}

	steps = append(steps, FallbackStep{
		Source: SourceGlobal,
		Key:    GroupKey{Technology: Global()},
	})

	seen := make(map[FallbackStep]struct{}, len(steps))
	deduped := steps[:0]
	for _, s := range steps {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		deduped = append(deduped, s)
	}
	return deduped
}

// Ancestors returns the static parent chain for a chosen rung, nearest
// first. The chain is fixed: parts and material dimensions drop before
// technology, and global terminates every chain. A global choice has no
// ancestors.
func Ancestors(chosen Source, technology, material string) []FallbackStep {
	tech := Tech(technology)
	techMat := FallbackStep{Source: SourceTechMat, Key: GroupKey{Technology: tech, Material: material}}
	techOnly := FallbackStep{Source: SourceTech, Key: GroupKey{Technology: tech}}
	global := FallbackStep{Source: SourceGlobal, Key: GroupKey{Technology: Global()}}

	switch chosen {
	case SourceTechMatParts:
		return []FallbackStep{techMat, techOnly, global}
	case SourceTechMat, SourceTechParts:
		return []FallbackStep{techOnly, global}
	case SourceTech:
		return []FallbackStep{global}
	default:
		return nil
	}
}
