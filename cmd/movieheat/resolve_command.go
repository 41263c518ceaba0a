package main

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

var queryYearPattern = regexp.MustCompile(`^(.*?)\s*\((\d{4})\)\s*$`)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var (
		file    string
		year    int
		asJSON  bool
		details bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [\"Title (Year)\"...]",
		Short: "Resolve movies and print their aggregate scores",
		Example: `  movieheat resolve "Dune: Part Two (2024)" "Wicked (2024)"
  movieheat resolve --year 2024 Conclave
  movieheat resolve --file movies.txt --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			queries := make([]domain.MovieQuery, 0, len(args))
			for _, arg := range args {
				q := parseQuery(arg)
				if q.Year == 0 {
					q.Year = year
				}
				queries = append(queries, q)
			}
			if file != "" {
				fromFile, err := readQueries(file)
				if err != nil {
					return err
				}
				queries = append(queries, fromFile...)
			}
			if len(queries) == 0 {
				return fmt.Errorf("no movies given; pass titles or --file")
			}

			application, err := ctx.application(cmd)
			if err != nil {
				return err
			}
			defer ctx.release(application)

			movies := application.Resolve(cmd.Context(), queries)
			if asJSON {
				return writeJSON(cmd, movies)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderMovies(movies, application.Registry().IDs()))
			if details {
				for _, m := range movies {
					fmt.Fprintln(cmd.OutOrStdout(), renderBreakdown(m))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read one \"Title (Year)\" per line from file")
	cmd.Flags().IntVar(&year, "year", 0, "Release year for titles given without one")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print canonical movies as JSON")
	cmd.Flags().BoolVar(&details, "details", false, "Print the per-provider breakdown")
	return cmd
}

// parseQuery splits "Title (2024)" into title and year. Text without a
// trailing year is taken as the title.
func parseQuery(arg string) domain.MovieQuery {
	arg = strings.TrimSpace(arg)
	if m := queryYearPattern.FindStringSubmatch(arg); m != nil {
		year, err := strconv.Atoi(m[2])
		if err == nil && strings.TrimSpace(m[1]) != "" {
			return domain.MovieQuery{Title: strings.TrimSpace(m[1]), Year: year}
		}
	}
	return domain.MovieQuery{Title: arg}
}

// readQueries parses one query per line, skipping blanks and # comments.
func readQueries(path string) ([]domain.MovieQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var queries []domain.MovieQuery
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, parseQuery(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return queries, nil
}
