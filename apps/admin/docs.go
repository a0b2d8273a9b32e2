package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolgate/core"
)

var errUnknownCollection = errors.New("unknown collection")

var docsCommands = map[string]bool{"get": true, "insert": true, "patch": true, "remove": true, "find": true}

// whereFlags collects repeated -where "field op value" clauses.
// The value is read as JSON when it parses, as a plain string otherwise.
type whereFlags []core.Filter

func (w *whereFlags) String() string { return fmt.Sprint(*w) }

func (w *whereFlags) Set(s string) error {
	parts := strings.SplitN(strings.TrimSpace(s), " ", 3)
	if len(parts) != 3 {
		return fmt.Errorf("%q: expected \"field op value\"", s)
	}
	var val interface{}
	if err := json.Unmarshal([]byte(parts[2]), &val); err != nil {
		val = parts[2]
	}
	*w = append(*w, core.Filter{Field: parts[0], Op: parts[1], Value: val})
	return nil
}

func parseData(raw string) (map[string]interface{}, error) {
	data := make(map[string]interface{})
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, errors.Wrap(err, "decoding -data")
	}
	return data, nil
}

// docs runs a document store subcommand: get, insert, patch, remove or find.
func (cli *commandLine) docs(args []string) error {
	if len(args) == 0 || !docsCommands[args[0]] {
		cli.printUsage()
		return errHelp
	}

	fs := flag.NewFlagSet("docs "+args[0], flag.ContinueOnError)
	fs.SetOutput(cli.out)
	collection := fs.String("collection", "", "The collection: "+strings.Join(core.Collections, ", ")+".")
	id := fs.String("id", "", "The document id.")
	data := fs.String("data", "", "The document fields, as a JSON object.")
	var where whereFlags
	fs.Var(&where, "where", `A "field op value" clause; may be repeated.`)

	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *collection == "" {
		fs.Usage()
		return errHelp
	}
	if !core.IsCollection(*collection) {
		return errors.Wrap(errUnknownCollection, *collection)
	}

	store, err := cli.store()
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch args[0] {
	case "get":
		if *id == "" {
			fs.Usage()
			return errHelp
		}
		doc, err := store.GetByID(ctx, *collection, *id)
		if err != nil {
			return err
		}
		return cli.printJSON(doc)

	case "insert":
		if *data == "" {
			fs.Usage()
			return errHelp
		}
		payload, err := parseData(*data)
		if err != nil {
			return err
		}
		newID, err := store.Insert(ctx, *collection, payload)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cli.out, newID)
		return nil

	case "patch":
		if *id == "" || *data == "" {
			fs.Usage()
			return errHelp
		}
		partial, err := parseData(*data)
		if err != nil {
			return err
		}
		if err = store.Patch(ctx, *collection, *id, partial); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cli.out, "%s patched\n", *id)
		return nil

	case "remove":
		if *id == "" {
			fs.Usage()
			return errHelp
		}
		if err = store.Remove(ctx, *collection, *id); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cli.out, "%s removed\n", *id)
		return nil

	case "find":
		found, err := store.QueryWhere(ctx, *collection, where)
		if err != nil {
			return err
		}
		for _, doc := range found {
			if err = cli.printJSON(doc); err != nil {
				return err
			}
		}
		return nil
	}

	cli.printUsage()
	return errHelp
}

func (cli *commandLine) printJSON(v interface{}) error {
	return json.NewEncoder(cli.out).Encode(v)
}
