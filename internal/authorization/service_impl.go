package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	userdomain "github.com/smallbiznis/affiliora/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectAffiliation  = "affiliation"
	ObjectOrder        = "order"
	ObjectSubscription = "subscription"
	ObjectContact      = "contact"
	ObjectActivity     = "activity"
)

const (
	ActionAffiliationCreate = "create"
	ActionAffiliationList   = "list"
	ActionAffiliationDelete = "delete"

	ActionOrderCreate  = "create"
	ActionOrderRead    = "read"
	ActionOrderCancel  = "cancel"
	ActionOrderShip    = "ship"
	ActionOrderDeliver = "deliver"

	ActionSubscriptionCreate  = "create"
	ActionSubscriptionRead    = "read"
	ActionSubscriptionCancel  = "cancel"
	ActionSubscriptionUpgrade = "upgrade"

	ActionContactRecord = "record"

	ActionActivityList = "list"
)

const roleMember = "role:member"

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the role model and persists the built-in policies through
// the gorm adapter so operators can add grants in casbin_rule.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, user *userdomain.User, object string, action string) error {
	if user == nil || user.ID == 0 {
		return ErrInvalidActor
	}
	role := strings.ToLower(strings.TrimSpace(user.Role))
	if role == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(roleSubject(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("user_id", user.ID.String()),
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func roleSubject(role string) string {
	return fmt.Sprintf("role:%s", role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Shared by every account type
		{roleMember, ObjectOrder, ActionOrderCreate},
		{roleMember, ObjectOrder, ActionOrderRead},
		{roleMember, ObjectOrder, ActionOrderCancel},
		{roleMember, ObjectSubscription, ActionSubscriptionCreate},
		{roleMember, ObjectSubscription, ActionSubscriptionRead},
		{roleMember, ObjectSubscription, ActionSubscriptionCancel},
		{roleMember, ObjectSubscription, ActionSubscriptionUpgrade},
		{roleMember, ObjectActivity, ActionActivityList},

		{roleSubject(userdomain.RoleInfluencer), ObjectAffiliation, ActionAffiliationCreate},
		{roleSubject(userdomain.RoleInfluencer), ObjectAffiliation, ActionAffiliationList},
		{roleSubject(userdomain.RoleInfluencer), ObjectAffiliation, ActionAffiliationDelete},

		{roleSubject(userdomain.RoleBrand), ObjectOrder, ActionOrderShip},
		{roleSubject(userdomain.RoleBrand), ObjectOrder, ActionOrderDeliver},

		{roleSubject(userdomain.RoleGuest), ObjectContact, ActionContactRecord},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	for _, role := range []string{userdomain.RoleBrand, userdomain.RoleInfluencer, userdomain.RoleGuest} {
		if _, err := enforcer.AddGroupingPolicy(roleSubject(role), roleMember); err != nil {
			return err
		}
	}
	return nil
}
