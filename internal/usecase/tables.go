package usecase

import "torrens/internal/domain"

// BuiltinTableSpecs returns the stock state machines for the three land
// administration domains. Deployments override or extend them with YAML
// specs via LoadTables.
func BuiltinTableSpecs() []TableSpec {
	return []TableSpec{
		{
			Domain:       string(domain.DomainPlanning),
			ResourceType: "planning_plan",
			Initial:      string(domain.StateDraft),
			Terminal:     []string{string(domain.StateApproved)},
			Display: map[string]string{
				string(domain.StateSubmitted): "awaiting_planning_authority",
				string(domain.StateApproved):  "approved_planning_authority",
			},
			Transitions: []RuleSpec{
				{
					From:  string(domain.StateDraft),
					Roles: []string{string(domain.RolePlanner)},
					To:    []string{string(domain.StateSubmitted)},
				},
				{
					From:  string(domain.StateSubmitted),
					Roles: []string{string(domain.RolePlanningAuthority)},
					To:    []string{string(domain.StateApproved), string(domain.StateRejected)},
				},
				{
					From:  string(domain.StateRejected),
					Roles: []string{string(domain.RolePlanner)},
					To:    []string{string(domain.StateDraft)},
				},
			},
		},
		{
			Domain:       string(domain.DomainSurvey),
			ResourceType: "survey_plan",
			Initial:      string(domain.StateDraft),
			Terminal:     []string{string(domain.StateSealed)},
			Display: map[string]string{
				string(domain.StateSubmitted):        "lodged_with_surveyor_general",
				string(domain.StateUnderExamination): "under_sg_examination",
				string(domain.StateSealed):           "sealed_by_surveyor_general",
			},
			Transitions: []RuleSpec{
				{
					From:  string(domain.StateDraft),
					Roles: []string{string(domain.RoleSurveyor)},
					To:    []string{string(domain.StateSubmitted)},
				},
				{
					From:  string(domain.StateSubmitted),
					Roles: []string{string(domain.RoleSurveyorGeneral)},
					To:    []string{string(domain.StateUnderExamination)},
				},
				{
					From:  string(domain.StateUnderExamination),
					Roles: []string{string(domain.RoleSurveyorGeneral)},
					To:    []string{string(domain.StateSealed), string(domain.StateRejected)},
				},
				{
					From:  string(domain.StateRejected),
					Roles: []string{string(domain.RoleSurveyor)},
					To:    []string{string(domain.StateDraft)},
				},
			},
		},
		{
			Domain:       string(domain.DomainDeeds),
			ResourceType: "deed",
			Initial:      string(domain.StateDraft),
			Terminal:     []string{string(domain.StateTransferred)},
			Display: map[string]string{
				string(domain.StateLodged):     "lodged_for_registration",
				string(domain.StateRegistered): "registered_with_deeds",
			},
			Transitions: []RuleSpec{
				{
					From:  string(domain.StateDraft),
					Roles: []string{string(domain.RoleConveyancer)},
					To:    []string{string(domain.StateLodged)},
				},
				{
					From:  string(domain.StateLodged),
					Roles: []string{string(domain.RoleRegistrar)},
					To:    []string{string(domain.StateRegistered), string(domain.StateRejected)},
				},
				{
					From:  string(domain.StateRegistered),
					Roles: []string{string(domain.RoleRegistrar)},
					To:    []string{string(domain.StateTransferred)},
				},
				{
					From:  string(domain.StateRejected),
					Roles: []string{string(domain.RoleConveyancer)},
					To:    []string{string(domain.StateDraft)},
				},
			},
		},
	}
}

// MustBuiltinTables compiles the stock tables, panicking on a defect in the
// compiled-in specs. Deployments loading YAML overlays use LoadTables and
// handle errors instead.
func MustBuiltinTables() *TransitionTable {
	tt, err := NewTransitionTable(BuiltinTableSpecs()...)
	if err != nil {
		panic(err)
	}
	return tt
}
