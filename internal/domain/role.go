package domain

// Role is the fixed category of an account. The set is closed: AllRoles lists
// every member and poolRules must carry an entry for each of them.
type Role string

const (
	RoleOriginal Role = "original"
	RoleFlexible Role = "flexible"
	RoleReceive  Role = "receive"
	RoleNetCash  Role = "net_cash"
	RoleVisa     Role = "visa"

	RoleFacebook Role = "facebook"
	RoleTiktok   Role = "tiktok"
	RoleShopee   Role = "shopee"

	RoleCarrier Role = "carrier"

	RoleTax       Role = "tax"
	RoleOperating Role = "operating"
	RoleSalary    Role = "salary"
	RoleImport    Role = "import"
	RoleOthers    Role = "others"
)

var AllRoles = []Role{
	RoleOriginal, RoleFlexible, RoleReceive, RoleNetCash, RoleVisa,
	RoleFacebook, RoleTiktok, RoleShopee,
	RoleCarrier,
	RoleTax, RoleOperating, RoleSalary, RoleImport, RoleOthers,
}

var PlatformRoles = []Role{RoleFacebook, RoleTiktok, RoleShopee}

// Pool names a balance bucket on an account.
type Pool string

const (
	// PoolNone means the role cannot take this side of a transfer.
	PoolNone Pool = ""
	PoolCash Pool = "cash"
	// PoolStaged is platform revenue not yet swept into cash.
	PoolStaged Pool = "staged"
	// PoolExternal is an unmodeled counterpart: nothing is checked or mutated.
	PoolExternal Pool = "external"
)

type poolRule struct {
	source      Pool
	destination Pool
}

var poolRules = map[Role]poolRule{
	RoleOriginal: {source: PoolCash, destination: PoolCash},
	RoleFlexible: {source: PoolCash, destination: PoolCash},
	RoleReceive:  {source: PoolCash, destination: PoolCash},
	RoleNetCash:  {source: PoolCash, destination: PoolCash},
	RoleVisa:     {source: PoolCash, destination: PoolCash},

	RoleFacebook: {source: PoolStaged, destination: PoolStaged},
	RoleTiktok:   {source: PoolStaged, destination: PoolStaged},
	RoleShopee:   {source: PoolStaged, destination: PoolStaged},

	RoleCarrier: {source: PoolExternal, destination: PoolNone},

	RoleTax:       {source: PoolNone, destination: PoolCash},
	RoleOperating: {source: PoolNone, destination: PoolCash},
	RoleSalary:    {source: PoolNone, destination: PoolCash},
	RoleImport:    {source: PoolNone, destination: PoolCash},
	RoleOthers:    {source: PoolNone, destination: PoolCash},
}

func (r Role) IsValid() bool {
	_, ok := poolRules[r]
	return ok
}

// SourcePool is the pool debited when the role sends funds.
func (r Role) SourcePool() Pool {
	return poolRules[r].source
}

// DestinationPool is the pool credited when the role receives funds.
func (r Role) DestinationPool() Pool {
	return poolRules[r].destination
}

func (r Role) IsPlatform() bool {
	switch r {
	case RoleFacebook, RoleTiktok, RoleShopee:
		return true
	}
	return false
}

// IsSink reports whether the role only ever receives funds.
func (r Role) IsSink() bool {
	return r.IsValid() && r.SourcePool() == PoolNone
}

// IsMultiInstance reports whether several accounts share the role and are
// told apart by sub-identity.
func (r Role) IsMultiInstance() bool {
	return r == RoleVisa
}

// HasAccount reports whether the role is backed by a persisted account.
func (r Role) HasAccount() bool {
	return r.IsValid() && r != RoleCarrier
}

// AccruesRevenue reports whether a Carrier inflow may land on the role.
func (r Role) AccruesRevenue() bool {
	return r == RoleReceive || r.IsPlatform()
}
