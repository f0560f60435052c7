package formschema

import "math"

type ScoreResult struct {
	Score    float64
	MaxScore float64
	Passed   *bool
}

// Score sums the option scores of the visible choice fields, each
// multiplied by the field weight (1 when unset). When settings define a
// maxScore the raw result is scaled to it.
func (s Schema) Score(res Result, settings Settings) *ScoreResult {
	if !settings.Scoring.Enabled {
		return nil
	}
	var score, max float64
	_ = walk(s.Fields, "", nil, 1, func(n node) error {
		f := n.field
		if !f.Type.IsChoice() || res.Hidden[n.path] || hiddenAncestor(res.Hidden, n.path) || !scored(f.Options) {
			return nil
		}
		w := f.Weight
		if w == 0 {
			w = 1
		}
		v, _ := getPath(res.Data, n.path)
		switch f.Type {
		case TypeMultiSelect:
			for _, o := range f.Options {
				if o.Score != nil && *o.Score > 0 {
					max += *o.Score * w
				}
			}
			if items, ok := v.([]any); ok {
				for _, item := range items {
					if o := findOption(f.Options, item); o != nil && o.Score != nil {
						score += *o.Score * w
					}
				}
			}
		default:
			best := 0.0
			for _, o := range f.Options {
				if o.Score != nil && *o.Score > best {
					best = *o.Score
				}
			}
			max += best * w
			if o := findOption(f.Options, v); o != nil && o.Score != nil {
				score += *o.Score * w
			}
		}
		return nil
	})

	if settings.Scoring.MaxScore > 0 && max > 0 {
		score = score / max * settings.Scoring.MaxScore
		max = settings.Scoring.MaxScore
	}
	out := &ScoreResult{Score: round2(score), MaxScore: round2(max)}
	if settings.Scoring.PassScore > 0 {
		passed := out.Score >= settings.Scoring.PassScore
		out.Passed = &passed
	}
	return out
}

func scored(opts []Option) bool {
	for _, o := range opts {
		if o.Score != nil {
			return true
		}
	}
	return false
}

func findOption(opts []Option, v any) *Option {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	for i := range opts {
		if opts[i].Value == s {
			return &opts[i]
		}
	}
	return nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
