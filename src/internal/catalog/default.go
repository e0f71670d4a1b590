package catalog

// 内置类别名称
const (
	Overflow           = "Overflow"
	Reentrancy         = "Reentrancy"
	Frontrunning       = "Frontrunning"
	UnauthorizedAccess = "Unauthorized Access"
	GasEfficiency      = "Gas Efficiency"
	SelfDestruct       = "Self-Destruct"
)

var defaultEntries = []VulnerabilityCategory{
	{
		Name:       Overflow,
		Signatures: []string{"uint", "+", "-", "*", "/"},
		CandidateFixes: []string{
			"Use SafeMath library for arithmetic operations",
			"Add require() statements to check bounds before operations",
			"Consider using OpenZeppelin's SafeMath implementation",
		},
	},
	{
		Name:       Reentrancy,
		Signatures: []string{"transfer", "send", "call.value"},
		CandidateFixes: []string{
			"Implement checks-effects-interactions pattern",
			"Use ReentrancyGuard from OpenZeppelin",
			"Update state variables before external calls",
			"Consider using transfer() instead of call.value()",
		},
	},
	{
		Name:       Frontrunning,
		Signatures: []string{"block.timestamp", "now", "blockhash"},
		CandidateFixes: []string{
			"Implement commit-reveal schemes",
			"Use block.number instead of block.timestamp where possible",
			"Add minimum and maximum bounds for timing-sensitive operations",
		},
	},
	{
		Name:       UnauthorizedAccess,
		Signatures: []string{"selfdestruct", "delegatecall", "public", "external"},
		CandidateFixes: []string{
			"Implement proper access control using modifiers",
			"Use OpenZeppelin's Ownable contract",
			"Add explicit function visibility modifiers",
			"Implement multi-signature requirements for critical functions",
		},
	},
	{
		Name:       GasEfficiency,
		Signatures: []string{"array", "mapping", "struct", "loop"},
		CandidateFixes: []string{
			"Use fixed size arrays when possible",
			"Optimize storage usage by packing variables",
			"Avoid unnecessary loops and complex computations",
			"Consider using events instead of storage for historical data",
		},
	},
	{
		Name:       SelfDestruct,
		Signatures: []string{"selfdestruct", "suicide"},
		CandidateFixes: []string{
			"Remove selfdestruct if not absolutely necessary",
			"Implement time-locks for destructible contracts",
			"Add multi-signature requirements for self-destruct",
			"Consider making contract non-destructible",
		},
	},
}

// Default 返回内置的六类漏洞表
func Default() *Catalog {
	c, err := New(defaultEntries)
	if err != nil {
		panic("catalog: invalid built-in catalog: " + err.Error())
	}
	return c
}
