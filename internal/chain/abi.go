package chain

// 未配置 abi_path 时使用的内置 ABI

const bondABI = `[
  {"type":"function","name":"getProject","stateMutability":"view",
   "inputs":[{"name":"projectId","type":"uint256"}],
   "outputs":[
     {"name":"name","type":"string"},
     {"name":"fundingGoal","type":"uint256"},
     {"name":"fundsRaised","type":"uint256"},
     {"name":"fundsReleased","type":"uint256"},
     {"name":"interestRate","type":"uint256"},
     {"name":"duration","type":"uint256"},
     {"name":"isActive","type":"bool"}]},
  {"type":"function","name":"getAccruedInterest","stateMutability":"view",
   "inputs":[{"name":"investor","type":"address"},{"name":"projectId","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getMilestone","stateMutability":"view",
   "inputs":[{"name":"projectId","type":"uint256"},{"name":"index","type":"uint256"}],
   "outputs":[
     {"name":"description","type":"string"},
     {"name":"fundsToRelease","type":"uint256"},
     {"name":"isCompleted","type":"bool"},
     {"name":"evidenceHash","type":"string"},
     {"name":"verifiedBy","type":"address"}]},
  {"type":"event","name":"InvestmentMade","anonymous":false,
   "inputs":[
     {"name":"projectId","type":"uint256","indexed":true},
     {"name":"investor","type":"address","indexed":true},
     {"name":"amount","type":"uint256","indexed":false},
     {"name":"tokens","type":"uint256","indexed":false},
     {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"MilestoneCompleted","anonymous":false,
   "inputs":[
     {"name":"projectId","type":"uint256","indexed":true},
     {"name":"milestoneIndex","type":"uint256","indexed":true},
     {"name":"evidenceHash","type":"string","indexed":false},
     {"name":"verifier","type":"address","indexed":false},
     {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"InterestClaimed","anonymous":false,
   "inputs":[
     {"name":"projectId","type":"uint256","indexed":true},
     {"name":"investor","type":"address","indexed":true},
     {"name":"amount","type":"uint256","indexed":false},
     {"name":"timestamp","type":"uint256","indexed":false}]}
]`

const tokenABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint8"}]}
]`

// 合约名称
const (
	BondContract  = "bond"
	TokenContract = "token"
)

var builtinABIs = map[string]string{
	BondContract:  bondABI,
	TokenContract: tokenABI,
}
