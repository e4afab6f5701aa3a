package pipeline

import (
	"fmt"
	"slices"
	"time"

	"github.com/poiesic/intake/core"
)

// ValidationRuleType selects the check a validation rule performs.
type ValidationRuleType int

const (
	RuleRequiredFields ValidationRuleType = iota + 1
	RuleTypeCheck
	RuleRangeCheck
	RuleFormat
	RuleReferenceIntegrity
	RuleBusiness
)

var ruleTypeNames = map[string]ValidationRuleType{
	"required_fields":     RuleRequiredFields,
	"type_check":          RuleTypeCheck,
	"range_check":         RuleRangeCheck,
	"format":              RuleFormat,
	"reference_integrity": RuleReferenceIntegrity,
	"business_rule":       RuleBusiness,
}

// ValidationRule is one configured validation check. A rule with FailOnError
// drops the record on failure; otherwise the failure is only logged.
type ValidationRule struct {
	Name         string
	Type         ValidationRuleType
	Params       core.Document
	FailOnError  bool
	ErrorMessage string
}

// TransformType selects the operation a transformation rule performs.
type TransformType int

const (
	TransformFieldMapping TransformType = iota + 1
	TransformTypeConversion
	TransformValueNormalization
	TransformMasking
	TransformAggregation
	TransformDerivedField
)

var transformTypeNames = map[string]TransformType{
	"field_mapping":       TransformFieldMapping,
	"type_conversion":     TransformTypeConversion,
	"value_normalization": TransformValueNormalization,
	"encryption_masking":  TransformMasking,
	"aggregation":         TransformAggregation,
	"derived_field":       TransformDerivedField,
}

// TransformationRule is one configured transformation. Conditional rules
// apply only when ConditionField equals ConditionValue.
type TransformationRule struct {
	Name           string
	Type           TransformType
	FieldMappings  map[string]string
	Params         core.Document
	Conditional    bool
	ConditionField string
	ConditionValue any
}

// EnrichmentRule adds a computed or fetched value to records. Results are
// cached per composite key with the rule's TTL.
type EnrichmentRule struct {
	Name         string
	TargetField  string
	SourceType   string // "lookup_table", "api_call" or "calculation"
	KeyFields    []string
	Config       core.Document
	CacheResults bool
	CacheTTL     time.Duration
}

// Config holds the full pipeline configuration.
type Config struct {
	Name               string
	EnabledStages      []Stage
	ValidationRules    []ValidationRule
	Transformations    []TransformationRule
	EnrichmentRules    []EnrichmentRule
	DuplicateKeyFields []string
	ComplianceRules    core.Document
	MinQualityScore    float64
	BatchSize          int
	MaxRetryAttempts   int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
}

// DefaultConfig returns a configuration with every stage enabled and
// conservative processing limits.
func DefaultConfig() Config {
	return Config{
		Name:             "standard",
		EnabledStages:    slices.Clone(canonicalStages),
		MinQualityScore:  0.5,
		BatchSize:        1000,
		MaxRetryAttempts: 3,
		RetryBaseDelay:   time.Second,
		RetryMaxDelay:    30 * time.Second,
	}
}

// ConfigFromSource builds a pipeline Config from the semi-structured rule
// documents carried by a SourceConfig. Unknown rule or stage names are a
// configuration error; the engine treats them as fatal.
func ConfigFromSource(src core.SourceConfig) (Config, error) {
	cfg := DefaultConfig()
	if src.BatchSize > 0 {
		cfg.BatchSize = src.BatchSize
	}
	if src.MaxRetries > 0 {
		cfg.MaxRetryAttempts = src.MaxRetries
	}
	if src.RetryDelay > 0 {
		cfg.RetryBaseDelay = src.RetryDelay
	}

	rules, err := parseValidationRules(src.ValidationRules)
	if err != nil {
		return cfg, err
	}
	cfg.ValidationRules = rules

	if err := applyTransformationDoc(&cfg, src.TransformationRules); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// parseValidationRules accepts either {"rules": [...]} or a document whose
// values are individual rule documents (the legacy layout).
func parseValidationRules(doc core.Document) ([]ValidationRule, error) {
	if len(doc) == 0 {
		return nil, nil
	}

	var raw []any
	if list, ok := doc["rules"].([]any); ok {
		raw = list
	} else {
		for _, v := range doc {
			if _, ok := v.(map[string]any); ok {
				raw = append(raw, v)
			}
		}
	}

	var rules []ValidationRule
	for _, item := range raw {
		ruleDoc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rule, err := parseValidationRule(ruleDoc)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseValidationRule(doc core.Document) (ValidationRule, error) {
	rule := ValidationRule{
		Name:         docString(doc, "rule_name"),
		FailOnError:  docBool(doc, "fail_on_error", true),
		ErrorMessage: docString(doc, "error_message"),
	}

	typeName := docString(doc, "rule_type")
	ruleType, ok := ruleTypeNames[typeName]
	if !ok {
		return rule, fmt.Errorf("%w: %q", ErrUnknownRuleType, typeName)
	}
	rule.Type = ruleType

	if params, ok := doc["parameters"].(map[string]any); ok {
		rule.Params = params
	}
	return rule, nil
}

func applyTransformationDoc(cfg *Config, doc core.Document) error {
	if len(doc) == 0 {
		return nil
	}

	if list, ok := doc["transformations"].([]any); ok {
		for _, item := range list {
			tDoc, ok := item.(map[string]any)
			if !ok {
				continue
			}
			rule, err := parseTransformationRule(tDoc)
			if err != nil {
				return err
			}
			cfg.Transformations = append(cfg.Transformations, rule)
		}
	}

	if list, ok := doc["enrichment_rules"].([]any); ok {
		for _, item := range list {
			eDoc, ok := item.(map[string]any)
			if !ok {
				continue
			}
			rule, err := parseEnrichmentRule(eDoc)
			if err != nil {
				return err
			}
			cfg.EnrichmentRules = append(cfg.EnrichmentRules, rule)
		}
	}

	if fields := docStringSlice(doc, "duplicate_key_fields"); len(fields) > 0 {
		cfg.DuplicateKeyFields = fields
	}

	if compliance, ok := doc["compliance_rules"].(map[string]any); ok {
		cfg.ComplianceRules = compliance
	}

	if score, ok := docFloat(doc, "min_quality_score"); ok {
		if score < 0 || score > 1 {
			return fmt.Errorf("%w: min_quality_score %v out of range", core.ErrInvalidConfig, score)
		}
		cfg.MinQualityScore = score
	}

	if names := docStringSlice(doc, "enabled_stages"); len(names) > 0 {
		var stages []Stage
		for _, name := range names {
			stage, ok := StageFromName(name)
			if !ok {
				return fmt.Errorf("%w: %q", ErrUnknownStage, name)
			}
			stages = append(stages, stage)
		}
		cfg.EnabledStages = stages
	}

	return nil
}

func parseTransformationRule(doc core.Document) (TransformationRule, error) {
	rule := TransformationRule{
		Name:           docString(doc, "transformation_name"),
		Conditional:    docBool(doc, "conditional", false),
		ConditionField: docString(doc, "condition_field"),
		ConditionValue: doc["condition_value"],
	}

	typeName := docString(doc, "transformation_type")
	transformType, ok := transformTypeNames[typeName]
	if !ok {
		return rule, fmt.Errorf("%w: %q", ErrUnknownTransformType, typeName)
	}
	rule.Type = transformType

	if mappings, ok := doc["field_mappings"].(map[string]any); ok {
		rule.FieldMappings = make(map[string]string, len(mappings))
		for from, to := range mappings {
			if target, ok := to.(string); ok {
				rule.FieldMappings[from] = target
			}
		}
	}
	if params, ok := doc["parameters"].(map[string]any); ok {
		rule.Params = params
	}
	return rule, nil
}

func parseEnrichmentRule(doc core.Document) (EnrichmentRule, error) {
	rule := EnrichmentRule{
		Name:         docString(doc, "rule_name"),
		TargetField:  docString(doc, "target_field"),
		SourceType:   docString(doc, "source_type"),
		KeyFields:    docStringSlice(doc, "key_fields"),
		CacheResults: docBool(doc, "cache_results", true),
		CacheTTL:     time.Hour,
	}

	switch rule.SourceType {
	case "lookup_table", "api_call", "calculation":
	default:
		return rule, fmt.Errorf("%w: %q", ErrUnknownEnrichmentSource, rule.SourceType)
	}

	if ttl, ok := docFloat(doc, "cache_ttl_seconds"); ok && ttl > 0 {
		rule.CacheTTL = time.Duration(ttl * float64(time.Second))
	}
	if config, ok := doc["enrichment_config"].(map[string]any); ok {
		rule.Config = config
	}
	return rule, nil
}
