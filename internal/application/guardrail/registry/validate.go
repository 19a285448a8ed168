package registry

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"lesson-forge-api/internal/domain/entity"
	apperrors "lesson-forge-api/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 校验规则集结构与语义，失败返回 ErrRuleSetInvalid
func Validate(rs *entity.RuleSet) error {
	if rs == nil {
		return apperrors.ErrRuleSetInvalid.WithDetail("rule set is nil")
	}
	ref := fmt.Sprintf("%s:%s@%d", rs.Category, rs.Key, rs.Version)

	if err := validate.Struct(rs); err != nil {
		return apperrors.ErrRuleSetInvalid.WithDetail(ref).WithError(err)
	}
	if !rs.Category.Valid() {
		return invalid(ref, "unknown category %q", rs.Category)
	}
	if rs.Rules == nil {
		return invalid(ref, "missing %s block", rs.Category)
	}
	if rs.Rules.Category() != rs.Category {
		return invalid(ref, "category block %q does not match category", rs.Rules.Category())
	}
	if err := validate.Struct(rs.Rules); err != nil {
		return apperrors.ErrRuleSetInvalid.WithDetail(ref).WithError(err)
	}

	seen := make(map[string]struct{}, len(rs.Directives))
	directives := rs.Directives
	if fr, ok := rs.Freshness(); ok {
		directives = append(append([]entity.Directive{}, rs.Directives...), fr.Pool...)
		if fr.Pick > len(fr.Pool) {
			return invalid(ref, "freshness pick %d exceeds pool size %d", fr.Pick, len(fr.Pool))
		}
	}
	for _, d := range directives {
		if _, dup := seen[d.ID]; dup {
			return invalid(ref, "duplicate directive id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
	}

	if len(rs.Detectors) > 0 && !rs.Category.Verifiable() {
		return invalid(ref, "detectors are only allowed on verifiable categories")
	}
	detIDs := make(map[string]struct{}, len(rs.Detectors))
	for _, d := range rs.Detectors {
		if _, dup := detIDs[d.ID]; dup {
			return invalid(ref, "duplicate detector id %q", d.ID)
		}
		detIDs[d.ID] = struct{}{}
		if err := validateDetector(rs, d); err != nil {
			return invalid(ref, "detector %q: %v", d.ID, err)
		}
	}
	return nil
}

func validateDetector(rs *entity.RuleSet, d entity.DetectorPattern) error {
	for _, scope := range d.SectionScope {
		if _, err := path.Match(scope, ""); err != nil {
			return fmt.Errorf("bad section scope %q: %w", scope, err)
		}
	}

	switch d.Kind {
	case entity.DetectorBlacklist, entity.DetectorRequired:
		if strings.TrimSpace(d.Pattern) == "" {
			return fmt.Errorf("pattern is required")
		}
		if d.Regex {
			if _, err := regexp.Compile(d.Pattern); err != nil {
				return fmt.Errorf("bad regex: %w", err)
			}
		}
		if d.Kind == entity.DetectorRequired && len(d.SectionScope) == 0 {
			return fmt.Errorf("required detectors must name a section scope")
		}
	case entity.DetectorQuoteLength:
		if d.MaxWords > 0 {
			return nil
		}
		cr, ok := rs.Copyright()
		if !ok || cr.MaxQuoteWords <= 0 {
			return fmt.Errorf("quote_length needs max_words or a copyright max_quote_words")
		}
	default:
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
	return nil
}

func invalid(ref, format string, args ...any) error {
	return apperrors.ErrRuleSetInvalid.WithDetail(ref + ": " + fmt.Sprintf(format, args...))
}
