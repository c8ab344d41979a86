package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"courserag/internal/server"
	"courserag/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		addr := fs.String("addr", ":8090", "listen address")
		_ = fs.Parse(os.Args[2:])
		if err := server.Run(*addr); err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version.String())
	case "courses":
		coursesCmd(os.Args[2:])
	case "add":
		addCmd(os.Args[2:])
	case "context":
		contextCmd(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("courserag - course material retrieval and context assembly")
	fmt.Println("usage:")
	fmt.Println("  courserag serve [--addr :8090]")
	fmt.Println("  courserag version")
	fmt.Println("  courserag courses [list|create --code <c> --name <n>]")
	fmt.Println("  courserag add --course <id> --title <t> [--kind lecture|slide|document] --text <body>")
	fmt.Println("  courserag context [--course <id>] [--user <id>] [--max-tokens N] [--multi] \"<question>\"")
}

func serverURL() string {
	if v := os.Getenv("COURSERAG_SERVER_URL"); v != "" {
		return v
	}
	return "http://localhost:8090"
}

func coursesCmd(args []string) {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		resp, err := http.Get(serverURL() + "/courses")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		io.Copy(os.Stdout, resp.Body)
	case "create":
		fs := flag.NewFlagSet("courses create", flag.ExitOnError)
		code := fs.String("code", "", "course code, e.g. CS101")
		name := fs.String("name", "", "course name")
		_ = fs.Parse(args[1:])
		if *code == "" || *name == "" {
			fmt.Println("--code and --name required")
			os.Exit(1)
		}
		body, _ := json.Marshal(map[string]string{"code": *code, "name": *name})
		resp, err := http.Post(serverURL()+"/courses", "application/json", strings.NewReader(string(body)))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		io.Copy(os.Stdout, resp.Body)
	default:
		fmt.Println("usage: courserag courses [list|create]")
		os.Exit(1)
	}
}

func addCmd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	course := fs.String("course", "", "course ID")
	title := fs.String("title", "", "material title")
	kind := fs.String("kind", "document", "lecture|slide|document")
	text := fs.String("text", "", "material body; reads stdin when empty")
	_ = fs.Parse(args)
	if *course == "" || *title == "" {
		fmt.Println("--course and --title required")
		os.Exit(1)
	}
	body := *text
	if body == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		body = string(data)
	}
	payload, _ := json.Marshal(map[string]string{
		"courseID": *course,
		"title":    *title,
		"kind":     *kind,
		"text":     body,
	})
	resp, err := http.Post(serverURL()+"/materials", "application/json", strings.NewReader(string(payload)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	io.Copy(os.Stdout, resp.Body)
}

func contextCmd(args []string) {
	fs := flag.NewFlagSet("context", flag.ExitOnError)
	course := fs.String("course", "", "course ID")
	user := fs.String("user", "", "user ID")
	maxTokens := fs.Int("max-tokens", 0, "token budget override")
	multi := fs.Bool("multi", false, "fan out across all courses")
	noCache := fs.Bool("no-cache", false, "bypass the routing cache")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Println("usage: courserag context [flags] \"<question>\"")
		os.Exit(1)
	}
	question := strings.Join(fs.Args(), " ")

	payload, _ := json.Marshal(map[string]any{
		"question": question,
		"options": map[string]any{
			"courseID":     *course,
			"userID":       *user,
			"maxTokens":    *maxTokens,
			"disableCache": *noCache,
		},
	})
	path := "/context"
	if *multi {
		path = "/context/multi"
	}
	resp, err := http.Post(serverURL()+path, "application/json", strings.NewReader(string(payload)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var cc struct {
		ContextText     string `json:"contextText"`
		EstimatedTokens int    `json:"estimatedTokens"`
		Routing         *struct {
			Action    string  `json:"action"`
			Reasoning string  `json:"reasoning"`
			Confidence struct {
				Score float64 `json:"score"`
				Level string  `json:"level"`
			} `json:"confidenceScore"`
		} `json:"routing"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cc); err != nil {
		_, _ = io.Copy(os.Stdout, resp.Body)
		return
	}
	if cc.Routing != nil {
		fmt.Printf("# action=%s confidence=%.0f (%s)\n# %s\n\n",
			cc.Routing.Action, cc.Routing.Confidence.Score, cc.Routing.Confidence.Level, cc.Routing.Reasoning)
	}
	fmt.Println(cc.ContextText)
	fmt.Printf("\n(~%d tokens)\n", cc.EstimatedTokens)
}
