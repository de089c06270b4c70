package db

var (
	NotFound = notFound
	LimitArg = limitArg
)
