package module

// 常见漏洞
// https://swcregistry.io/

type SWCData struct {
	ID          string
	Title       string
	Description string
}

const (
	SeverityHigh   = "High"
	SeverityMedium = "Medium"
	SeverityLow    = "Low"
)

var SWCDataMap = map[string]*SWCData{
	"106": {
		"106",
		"Unprotected SELFDESTRUCT Instruction",
		"Due to missing or insufficient access controls, malicious parties can self-destruct the contract.",
	},
	"110": {
		"110",
		"Assert Violation",
		"The Solidity assert() function is meant to assert invariants. Properly functioning code should never reach a failing assert statement. A reachable assertion can mean one of two things: a bug exists in the contract that allows it to enter an invalid state, or the assert statement is used incorrectly, e.g. to validate inputs.",
	},
	"115": {
		"115",
		"Authorization through tx.origin",
		"tx.origin is a global variable in Solidity which returns the address of the account that sent the transaction. Using the variable for authorization could make a contract vulnerable if an authorized account calls into a malicious contract. A call could be made to the vulnerable contract that passes the authorization check since tx.origin returns the original sender of the transaction which in this case is the authorized account.",
	},
	"123": {
		"123",
		"Requirement Violation",
		"The Solidity require() construct is meant to validate external inputs of a function. In most cases, such external inputs are provided by callers, but they may also be returned by callees. A reachable revert shows an input that the contract rejects.",
	},
	"127": {
		"127",
		"Arbitrary Jump with Function Type Variable",
		"Solidity supports function types. That is, a variable of function type can be assigned with a reference to a function with a matching signature. The function saved to such variable can be called just like a regular function. The problem arises when a user has the ability to arbitrarily change the function type variable and thus execute random code instructions. As Solidity doesn't support pointer arithmetics, it's impossible to change such variable to an arbitrary value. However, if the developer uses assembly instructions, such as mstore or assign operator, in the worst case scenario an attacker is able to point a function type variable to any code instruction, violating required validations and required state changes.",
	},
}
