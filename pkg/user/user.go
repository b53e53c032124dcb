package user

// User is the owner of budgets, days and journal entries. Registration lives outside this service,
// users are only resolved here.
type User struct {
	Id          int
	Uid         string
	Username    string
	DisplayName string
}
