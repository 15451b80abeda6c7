package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"badgedesk/directory"
	"badgedesk/reader"
	"badgedesk/registry"
	"badgedesk/scan"
)

func loadCLIConfig() (*Config, error) {
	cfg, err := LoadConfig(cfgFile, false)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(false); err != nil {
		return nil, err
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List USB and PCI serial ports a reader may be on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := reader.ListCandidatePorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no candidate ports found")
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func newScanCmd() *cobra.Command {
	var (
		flagPort string
		flagBaud int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Connect, read the card on the antenna once and print the outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return err
			}
			port := firstNonEmpty(flagPort, cfg.Reader.Port)
			if port == "" {
				return fmt.Errorf("--port or reader.port must be provided")
			}
			baud := cfg.Reader.Baud
			if flagBaud > 0 {
				baud = flagBaud
			}

			driver, err := reader.NewDriver(cfg.Reader.Driver)
			if err != nil {
				return err
			}
			protocol, err := cfg.Reader.Protocol.Protocol()
			if err != nil {
				return err
			}
			store, err := directory.Open(cfg.Directory.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			reg := registry.New(driver)
			svc := scan.New(reg, protocol, directory.NewResolver(store))
			if _, err := svc.Connect(port, baud); err != nil {
				return err
			}
			defer svc.Disconnect()

			out, err := svc.Scan(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}

	cmd.Flags().StringVar(&flagPort, "port", "", "Serial port (default from reader.port)")
	cmd.Flags().IntVar(&flagBaud, "baud", 0, "Baud rate (default from reader.baud)")
	return cmd
}

func newStudentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "students",
		Short: "Manage the student directory",
	}
	cmd.AddCommand(
		newStudentsListCmd(),
		newStudentsAddCmd(),
		newStudentsBindCmd(),
		newStudentsUnbindCmd(),
		newStudentsDeleteCmd(),
		newStudentsAttendanceCmd(),
		newStudentsExportCmd(),
		newStudentsImportCmd(),
	)
	return cmd
}

func openStore() (*directory.Store, error) {
	_, store, err := openStoreWithConfig()
	return store, err
}

func openStoreWithConfig() (*Config, *directory.Store, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := directory.Open(cfg.Directory.Path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func newStudentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List students, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			students, err := store.ListStudents(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tLEVEL\tCARD\tACTIVE")
			for _, s := range students {
				card := s.RFIDCard
				if card == "" {
					card = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", s.ID, s.FullName(), s.AcademicLevel, card, s.IsActive)
			}
			return tw.Flush()
		},
	}
}

func newStudentsAddCmd() *cobra.Command {
	var st directory.Student
	var inactive bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if st.FirstName == "" || st.LastName == "" {
				return fmt.Errorf("--first and --last must be provided")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			st.IsActive = !inactive
			created, err := store.CreateStudent(cmd.Context(), st)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), created.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&st.FirstName, "first", "", "First name")
	f.StringVar(&st.LastName, "last", "", "Last name")
	f.StringVar(&st.Email, "email", "", "Email")
	f.StringVar(&st.Phone, "phone", "", "Phone")
	f.StringVar(&st.AcademicLevel, "level", "", "Academic level")
	f.StringVar(&st.RFIDCard, "card", "", "RFID card identifier")
	f.StringVar(&st.ParentName, "parent", "", "Parent name")
	f.StringVar(&st.ParentPhone, "parent-phone", "", "Parent phone")
	f.StringVar(&st.Notes, "notes", "", "Notes")
	f.BoolVar(&inactive, "inactive", false, "Create the student as inactive")
	return cmd
}

func newStudentsBindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bind <id> <card>",
		Short: "Bind a card to a student, replacing any previous card",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.BindCard(cmd.Context(), args[0], args[1])
		},
	}
}

func newStudentsUnbindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unbind <id>",
		Short: "Remove a student's card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.BindCard(cmd.Context(), args[0], "")
		},
	}
}

func newStudentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a student and their attendance rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteStudent(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted student %s\n", args[0])
			return nil
		},
	}
}

func newStudentsAttendanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attendance [YYYY-MM-DD]",
		Short: "Show check-ins for a day (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := time.Now().Format("2006-01-02")
			if len(args) == 1 {
				if _, err := time.Parse("2006-01-02", args[0]); err != nil {
					return fmt.Errorf("invalid date %q", args[0])
				}
				date = args[0]
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.AttendanceOn(cmd.Context(), date)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STUDENT\tSTATUS\tCHECK-IN")
			for _, a := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.StudentID, a.Status, a.CheckInTime)
			}
			return tw.Flush()
		},
	}
}

func newStudentsExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write every student as a JSON roster (default stdout)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			students, err := store.ListStudents(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return directory.WriteRoster(cmd.OutOrStdout(), students)
			}

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := directory.WriteRoster(f, students); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d students to %s\n", len(students), args[0])
			return nil
		},
	}
}

func newStudentsImportCmd() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Create or update students from a JSON roster file or directory.roster",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote == (len(args) == 1) {
				return fmt.Errorf("give either a file or --remote")
			}
			cfg, store, err := openStoreWithConfig()
			if err != nil {
				return err
			}
			defer store.Close()

			var students []directory.Student
			source := cfg.Directory.Roster.URL
			if remote {
				students, err = directory.FetchRoster(cmd.Context(), cfg.Directory.Roster)
			} else {
				source = args[0]
				students, err = readRosterFile(source)
			}
			if err != nil {
				return err
			}

			res, err := store.Import(cmd.Context(), students)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d students from %s (%d created, %d updated)\n",
				res.Created+res.Updated, source, res.Created, res.Updated)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Fetch the roster from directory.roster.url")
	return cmd
}

func readRosterFile(path string) ([]directory.Student, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return directory.ReadRoster(f)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
