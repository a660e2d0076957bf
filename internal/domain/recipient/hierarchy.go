package recipient

import "fmt"

// Depth caps per hierarchy type. Root is depth 0; a node at the cap rejects
// children. Processor chains are capped shallower than organizational trees
// because each delegation hop weakens controller oversight.
const (
	MaxDepthProcessorChain = 5
	MaxDepthOrganizational = 10
	MaxDepthGrouping       = 10
)

// MaxDepthFor returns the depth cap for a hierarchy type. Recipients outside
// any declared hierarchy get the organizational cap as an upper bound for
// traversal termination.
func MaxDepthFor(h HierarchyType) int {
	if h == HierarchyProcessorChain {
		return MaxDepthProcessorChain
	}
	return MaxDepthOrganizational
}

// allowedParentTypes maps each recipient type to the set of types permitted
// as its direct parent. A type absent from a set is a blocking violation.
// Types that only appear as roots map to an empty set.
var allowedParentTypes = map[Type]map[Type]bool{
	TypeProcessor: {
		TypeJointController:    true,
		TypeSeparateController: true,
	},
	TypeSubProcessor: {
		TypeProcessor:    true,
		TypeSubProcessor: true,
	},
	TypeJointController: {
		TypeJointController: true,
	},
	TypeServiceProvider: {
		TypeProcessor:          true,
		TypeServiceProvider:    true,
		TypeInternalDepartment: true,
	},
	TypeSeparateController: {},
	TypePublicAuthority:    {},
	TypeInternalDepartment: {
		TypeInternalDepartment: true,
	},
}

// CanParent reports whether parentType is an acceptable direct parent for
// childType.
func CanParent(childType, parentType Type) bool {
	allowed, ok := allowedParentTypes[childType]
	if !ok {
		return false
	}
	return allowed[parentType]
}

// hierarchyTypeFor maps a recipient type to the hierarchy kind its parent
// chain belongs to.
func hierarchyTypeFor(t Type) HierarchyType {
	switch t {
	case TypeProcessor, TypeSubProcessor:
		return HierarchyProcessorChain
	case TypeInternalDepartment:
		return HierarchyOrganizational
	default:
		return HierarchyGrouping
	}
}

// HierarchyTypeConsistent checks that a declared hierarchy type matches the
// recipient's own type. GROUPING accepts any type; the two structured
// hierarchies only accept their own kinds.
func HierarchyTypeConsistent(t Type, h HierarchyType) bool {
	switch h {
	case HierarchyNone, HierarchyGrouping:
		return true
	case HierarchyProcessorChain:
		return t == TypeProcessor || t == TypeSubProcessor
	case HierarchyOrganizational:
		return t == TypeInternalDepartment
	}
	return false
}

// Validation rule identifiers, stable for API consumers.
const (
	RuleCycle                  = "cycle"
	RuleDepthExceeded          = "depth_exceeded"
	RuleParentTypeIncompatible = "parent_type_incompatible"
	RuleCrossTenantParent      = "cross_tenant_parent"
	RuleHierarchyTypeMismatch  = "hierarchy_type_mismatch"
	RuleMissingAgreement       = "missing_agreement"
	RuleInvalidType            = "invalid_type"
)

// Issue is a single validation finding: which rule, on which field, with the
// offending value, so callers can render field-level remediation messages.
type Issue struct {
	Rule    string `json:"rule"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// ValidationResult collects all findings from one validation pass. Errors
// block the mutation; warnings ride along with a successful result.
type ValidationResult struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Valid reports whether the result carries no blocking errors.
func (v *ValidationResult) Valid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) AddError(rule, field, message, value string) {
	v.Errors = append(v.Errors, Issue{Rule: rule, Field: field, Message: message, Value: value})
}

func (v *ValidationResult) AddWarning(rule, field, message, value string) {
	v.Warnings = append(v.Warnings, Issue{Rule: rule, Field: field, Message: message, Value: value})
}

// Merge folds another result into this one.
func (v *ValidationResult) Merge(other *ValidationResult) {
	v.Errors = append(v.Errors, other.Errors...)
	v.Warnings = append(v.Warnings, other.Warnings...)
}

// ValidatePlacement runs the parent/child rules that need no storage access:
// type validity, parent-type compatibility and hierarchy-type consistency.
// Depth, cycle and tenant checks need traversal and live in the hierarchy
// service.
func ValidatePlacement(child *Recipient, parent *Recipient) *ValidationResult {
	result := &ValidationResult{}

	if !child.Type.IsValid() {
		result.AddError(RuleInvalidType, "type",
			fmt.Sprintf("unknown recipient type %q", child.Type), string(child.Type))
		return result
	}

	if !HierarchyTypeConsistent(child.Type, child.HierarchyType) {
		result.AddError(RuleHierarchyTypeMismatch, "hierarchy_type",
			fmt.Sprintf("hierarchy type %s does not admit recipient type %s",
				child.HierarchyType, child.Type),
			string(child.HierarchyType))
	}

	if parent == nil {
		return result
	}

	if parent.OrganizationID != child.OrganizationID {
		result.AddError(RuleCrossTenantParent, "parent_recipient_id",
			"parent recipient belongs to a different organization",
			parent.ID.String())
		// A cross-tenant parent invalidates everything downstream.
		return result
	}

	if !CanParent(child.Type, parent.Type) {
		result.AddError(RuleParentTypeIncompatible, "parent_recipient_id",
			fmt.Sprintf("a %s cannot be the parent of a %s", parent.Type, child.Type),
			string(parent.Type))
	}

	if child.HierarchyType != HierarchyNone && parent.HierarchyType != HierarchyNone &&
		child.HierarchyType != parent.HierarchyType {
		result.AddError(RuleHierarchyTypeMismatch, "hierarchy_type",
			fmt.Sprintf("child hierarchy type %s does not match parent hierarchy type %s",
				child.HierarchyType, parent.HierarchyType),
			string(child.HierarchyType))
	}

	return result
}

// DefaultHierarchyType derives the hierarchy type to record when a recipient
// is attached to a parent without one declared.
func DefaultHierarchyType(child *Recipient) HierarchyType {
	if child.HierarchyType != HierarchyNone {
		return child.HierarchyType
	}
	return hierarchyTypeFor(child.Type)
}
