package rbac

// RolePermissions is the default policy. Patterns ending in * match by prefix.
// The *:manage-any permissions bypass ownership of classes and quizzes.
var RolePermissions = map[string][]string{
	"student": {
		"class:view",
		"class:join",
		"quiz:view",
		"result:view-own",
		"attempt:*",
		"user:change_password",
	},
	"teacher": {
		"class:create",
		"class:view",
		"class:delete_own",
		"quiz:create",
		"quiz:view",
		"quiz:assign",
		"quiz:export",
		"result:view-all",
		"result:release",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
