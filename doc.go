// Package fetcher binds the methods of service objects (API clients, repositories) to a
// cache-aware fetch primitive, removing the glue code otherwise written for every method.
//
// A Wrapper discovers the exported methods and func-typed fields of a source value and exposes
// each of them as a Method. Calling a Method registers one execution with the configured Fetcher:
//
//	w, err := fetcher.New(fetcher.WithFetcher(fetcher.NewEngine()))
//	if err != nil {
//		return err
//	}
//	api := w.Wrap(client)
//
//	users, _ := api.Method("ListUsers")
//	res := users.Call(ctx)
//
//	user, _ := api.Method("GetUser")
//	res, err = user.CallWithArgs(ctx, func() []any { return []any{id} })
//
// Argument-free calls are cached under the method name, argument-supplying calls under the
// method name followed by the JSON encoding of the current arguments, for example `GetUser[42]`.
// The argument supplier is also registered as the watched dependency of the call, so
// Result.Sync recomputes once the arguments change.
//
// Engine is the in-process Fetcher shipped with the package. Any other implementation of
// Fetcher can be plugged in instead, the Wrapper never looks at the state it keeps.
package fetcher
